package api

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// calendarDate accepts YYYY-MM-DD strings naming a real day. Whether the day
// is far enough in the future is decided by the service, which knows "today".
var calendarDate validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// RegisterValidators adds the custom binding tags to gin's validator
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("calendardate", calendarDate)
	}
}
