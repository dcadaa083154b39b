package core

import (
	"context"
	stderrors "errors"
	"fmt"

	apperrors "courier/pkg/errors"
	"courier/pkg/models"
)

// ErrorParser turns a captured Go error into the structured @error value.
type ErrorParser interface {
	Parse(ctx context.Context, pc *PluginContext, err error) (*models.ErrorInfo, error)
}

// StackTracer is implemented by errors that carry their own frames.
type StackTracer interface {
	StackFrames() []models.StackFrame
}

// DefaultErrorParser follows the errors.Unwrap chain, outermost first. The
// Go type of each error becomes its type name. Coded application errors
// contribute their code and details.
type DefaultErrorParser struct{}

const maxErrorDepth = 32

func (DefaultErrorParser) Parse(_ context.Context, _ *PluginContext, err error) (*models.ErrorInfo, error) {
	if err == nil {
		return nil, fmt.Errorf("no error to parse")
	}

	var root, last *models.ErrorInfo
	for depth := 0; err != nil && depth < maxErrorDepth; depth++ {
		info := &models.ErrorInfo{
			Type:    fmt.Sprintf("%T", err),
			Message: err.Error(),
		}

		if st, ok := err.(StackTracer); ok {
			info.StackTrace = st.StackFrames()
		}

		if coded, ok := err.(*apperrors.Error); ok {
			info.Code = coded.Code
			if len(coded.Details) > 0 {
				info.Data = make(map[string]interface{}, len(coded.Details))
				for k, v := range coded.Details {
					info.Data[k] = v
				}
			}
		}

		if root == nil {
			root = info
		} else {
			last.Inner = info
		}
		last = info
		err = stderrors.Unwrap(err)
	}
	return root, nil
}
