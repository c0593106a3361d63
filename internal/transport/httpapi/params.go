package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
)

// queryParser накапливает ошибки разбора query-параметров.
type queryParser struct {
	values url.Values
	errs   []error
}

func (p *queryParser) intVar(name string, dst *int) {
	raw := p.values.Get(name)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: must be an integer", name))
		return
	}
	*dst = v
}

func (p *queryParser) floatVar(name string, dst *float64) {
	if v := p.floatPtr(name); v != nil {
		*dst = *v
	}
}

func (p *queryParser) floatPtr(name string) *float64 {
	raw := p.values.Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: must be a number", name))
		return nil
	}
	return &v
}

func (p *queryParser) boolPtr(name string) *bool {
	raw := p.values.Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: must be a boolean", name))
		return nil
	}
	return &v
}

func (p *queryParser) stringPtr(name string) *string {
	raw := p.values.Get(name)
	if raw == "" {
		return nil
	}
	return &raw
}

func (p *queryParser) err() error {
	return errors.Join(p.errs...)
}
