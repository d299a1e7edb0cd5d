package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/eskrenkovic/mediator-go"
)

type Validator interface {
	Validate() error
}

type ValidationError struct {
	ValidationErrors []error
}

func (e ValidationError) Error() string {
	var b strings.Builder
	for i, err := range e.ValidationErrors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

var _ mediator.PipelineBehavior = (*RequestValidationBehavior)(nil)

type RequestValidationBehavior struct{}

func (b *RequestValidationBehavior) Handle(
	ctx context.Context,
	request interface{},
	next mediator.RequestHandlerFunc,
) (interface{}, error) {
	if request, ok := request.(Validator); ok {
		if err := request.Validate(); err != nil {
			if _, ok := AsCommandError(err); ok {
				return nil, err
			}
			return nil, NewCommandError(http.StatusBadRequest, err)
		}
	}

	return next(ctx, request)
}
