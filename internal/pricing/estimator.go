// Package pricing turns a generation request into a credit cost. Everything
// here is pure: no I/O, no clock, no randomness.
package pricing

import (
	"fmt"
	"slices"

	"github.com/genstudio/backend/internal/apperr"
)

var (
	ErrUnknownModel          = fmt.Errorf("%w: unknown model", apperr.ErrValidation)
	ErrUnsupportedParameters = fmt.Errorf("%w: unsupported parameters", apperr.ErrValidation)
)

// Free-form image sizes must fall inside these bounds.
const (
	minImageSide = 128
	maxImageSide = 2048
)

type Request struct {
	Model           string
	DurationSeconds int
	Width           int
	Height          int
	Audio           bool
	ImageInput      bool
}

// Quote is a priced request. UserCost is always Markup(APICost).
type Quote struct {
	Model      Model
	Resolution *Resolution
	APICost    int64
	UserCost   int64
}

type Estimator struct {
	catalog Catalog
}

func NewEstimator(catalog Catalog) *Estimator {
	return &Estimator{catalog: catalog}
}

func (e *Estimator) Models() []Model { return e.catalog.Sorted() }

func (e *Estimator) Lookup(id string) (Model, bool) {
	m, ok := e.catalog[id]
	return m, ok
}

// Estimate validates req against the model's capabilities and prices it.
// Checks run in a fixed order so the first problem reported is stable.
func (e *Estimator) Estimate(req Request) (Quote, error) {
	m, ok := e.catalog[req.Model]
	if !ok {
		return Quote{}, fmt.Errorf("%w %q", ErrUnknownModel, req.Model)
	}
	if req.ImageInput && !m.ImageInput {
		return Quote{}, fmt.Errorf("%w: image input not supported for %s", ErrUnsupportedParameters, m.Name)
	}
	if req.Audio && !m.Audio {
		return Quote{}, fmt.Errorf("%w: audio generation not supported for %s", ErrUnsupportedParameters, m.Name)
	}

	switch m.Media {
	case MediaVideo:
		if !slices.Contains(m.Durations, req.DurationSeconds) {
			return Quote{}, fmt.Errorf("%w: duration %ds not supported for %s (supported: %v)",
				ErrUnsupportedParameters, req.DurationSeconds, m.Name, m.Durations)
		}
	default:
		if req.DurationSeconds != 0 {
			return Quote{}, fmt.Errorf("%w: duration is not valid for image model %s", ErrUnsupportedParameters, m.Name)
		}
	}

	res, err := resolve(m, req)
	if err != nil {
		return Quote{}, err
	}

	apiCost, err := m.Price(req, res)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Model: m, Resolution: res, APICost: apiCost, UserCost: Markup(apiCost)}, nil
}

func resolve(m Model, req Request) (*Resolution, error) {
	if (req.Width == 0) != (req.Height == 0) {
		return nil, fmt.Errorf("%w: width and height must be given together", ErrUnsupportedParameters)
	}

	if len(m.Resolutions) == 0 {
		if req.Width != 0 && (outOfRange(req.Width) || outOfRange(req.Height)) {
			return nil, fmt.Errorf("%w: size %dx%d outside %d-%d", ErrUnsupportedParameters,
				req.Width, req.Height, minImageSide, maxImageSide)
		}
		return nil, nil
	}

	if req.Width == 0 {
		def := m.Resolutions[0]
		return &def, nil
	}
	idx := slices.IndexFunc(m.Resolutions, func(r Resolution) bool {
		return r.Width == req.Width && r.Height == req.Height
	})
	if idx < 0 {
		return nil, fmt.Errorf("%w: resolution %dx%d not supported for %s", ErrUnsupportedParameters, req.Width, req.Height, m.Name)
	}
	res := m.Resolutions[idx]
	if len(res.Durations) > 0 && !slices.Contains(res.Durations, req.DurationSeconds) {
		return nil, fmt.Errorf("%w: duration %ds not supported at %s (supported: %v)",
			ErrUnsupportedParameters, req.DurationSeconds, res.Tier, res.Durations)
	}
	return &res, nil
}

func outOfRange(side int) bool {
	return side < minImageSide || side > maxImageSide
}
