package controllers

import (
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	services "github.com/phillip/volunteer-listings-go/services"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the "date" (YYYY-MM-DD) and "clock" (HH:MM) tags
// to gin's validator.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("controllers: gin validator is not go-playground/validator")
			return
		}
		if err := v.RegisterValidation("date", layoutValidator(services.DateLayout)); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("clock", layoutValidator(services.ClockLayout))
	})
	return registerErr
}

func layoutValidator(layout string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, err := time.Parse(layout, fl.Field().String())
		return err == nil
	}
}
