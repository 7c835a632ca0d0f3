package service

import "github.com/pkg/errors"

func errBadKey(symbol, tf string) error {
	return errors.Errorf("aggregator: bad subscription key %q@%q", symbol, tf)
}
