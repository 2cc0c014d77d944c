package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

type SelectionMode string

const (
	SelectSingle SelectionMode = "single"
	SelectRange  SelectionMode = "range"
	SelectAll    SelectionMode = "all"
)

type PageSelection struct {
	Mode  SelectionMode `json:"mode" validate:"omitempty,oneof=single range all"`
	Start int           `json:"start,omitempty" validate:"gte=0"`
	End   int           `json:"end,omitempty" validate:"gte=0"`
}

func AllPages() PageSelection {
	return PageSelection{Mode: SelectAll}
}

func SinglePage(n int) PageSelection {
	return PageSelection{Mode: SelectSingle, Start: n, End: n}
}

func PageRange(start, end int) PageSelection {
	return PageSelection{Mode: SelectRange, Start: start, End: end}
}

// Resolve turns the selection into a closed, 1-based page interval for a
// document of pageCount pages.
func (s PageSelection) Resolve(pageCount int) (int, int, error) {
	if pageCount <= 0 {
		return 0, 0, NewConfigError("selection", "document has no pages")
	}
	switch s.Mode {
	case SelectAll, "":
		return 1, pageCount, nil
	case SelectSingle:
		if s.Start < 1 || s.Start > pageCount {
			return 0, 0, NewConfigError("selection", "page %d outside 1..%d", s.Start, pageCount)
		}
		return s.Start, s.Start, nil
	case SelectRange:
		if s.Start < 1 || s.End > pageCount {
			return 0, 0, NewConfigError("selection", "range %d-%d outside 1..%d", s.Start, s.End, pageCount)
		}
		if s.Start > s.End {
			return 0, 0, NewConfigError("selection", "range start %d after end %d", s.Start, s.End)
		}
		return s.Start, s.End, nil
	}
	return 0, 0, NewConfigError("selection", "unknown mode %q", s.Mode)
}

func (s PageSelection) String() string {
	switch s.Mode {
	case SelectSingle:
		return fmt.Sprintf("page %d", s.Start)
	case SelectRange:
		return fmt.Sprintf("pages %d-%d", s.Start, s.End)
	}
	return "all pages"
}

type SelectParams struct {
	PageSelection
}

type AnalyzeParams struct {
	PageSelection
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	// RunID lets a caller name a synchronous run so it can be cancelled.
	RunID string `json:"run_id,omitempty" validate:"omitempty,uuid"`
}

type ExportParams struct {
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
}

type IngestParams struct {
	Corpus string `form:"corpus" validate:"omitempty,max=64"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

var validate = validator.New()

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *SelectParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *AnalyzeParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *ExportParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *IngestParams) Validate() map[string]string {
	return validateStruct(params)
}
