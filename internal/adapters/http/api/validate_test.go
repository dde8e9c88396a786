package api

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCheckSubmitRequest(t *testing.T) {
	Convey("Given submit bodies", t, func() {
		score, id := int64(5), int64(3)

		Convey("A body naming neither player field fails with ErrMissingID", func() {
			err := check(&submitRequest{Score: &score})
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, ErrMissingID), ShouldBeTrue)
		})

		Convey("Either player field is enough", func() {
			So(check(&submitRequest{PlayerID: &id, Score: &score}), ShouldBeNil)
			So(check(&submitRequest{UserID: &id, Score: &score}), ShouldBeNil)
		})

		Convey("Other failures do not claim a missing id", func() {
			err := check(&submitRequest{PlayerID: &id})
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, ErrMissingID), ShouldBeFalse)
		})
	})
}
