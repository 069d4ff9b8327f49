package transport

import (
	"errors"
)

// Multi fans one bridge out to several surfaces. Unavailable surfaces are
// dropped at construction.
type Multi struct {
	surfaces []Surface
}

// NewMulti returns a surface that forwards to every available surface.
func NewMulti(surfaces ...Surface) *Multi {
	m := &Multi{}
	for _, s := range surfaces {
		if s != nil && s.Available() {
			m.surfaces = append(m.surfaces, s)
		}
	}
	return m
}

func (m *Multi) Available() bool { return len(m.surfaces) > 0 }

func (m *Multi) SetMetadata(md Metadata) error {
	return m.each(func(s Surface) error { return s.SetMetadata(md) })
}

func (m *Multi) SetPlaybackState(playing bool) error {
	return m.each(func(s Surface) error { return s.SetPlaybackState(playing) })
}

func (m *Multi) SetPosition(p Position) error {
	return m.each(func(s Surface) error { return s.SetPosition(p) })
}

// SetHandler reports ErrUnsupported only when no surface accepted h.
func (m *Multi) SetHandler(a Action, h Handler) error {
	var errs []error
	accepted := false
	for _, s := range m.surfaces {
		err := s.SetHandler(a, h)
		switch {
		case err == nil:
			accepted = true
		case !errors.Is(err, ErrUnsupported):
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !accepted {
		return ErrUnsupported
	}
	return nil
}

func (m *Multi) Clear() error {
	return m.each(Surface.Clear)
}

func (m *Multi) each(fn func(Surface) error) error {
	var errs []error
	for _, s := range m.surfaces {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
