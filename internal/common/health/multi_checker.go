package health

import (
	"errors"
	"strings"
	"sync"
)

// MultiChecker is healthy only if all of its checkers are.
type MultiChecker struct {
	checkers []Checker
	mu       sync.Mutex
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{
		checkers: checkers,
	}
}

func (mc *MultiChecker) Check() error {
	mc.mu.Lock()
	checkers := append([]Checker{}, mc.checkers...)
	mc.mu.Unlock()

	errorStrings := []string{}
	for _, checker := range checkers {
		err := checker.Check()
		if err != nil {
			errorStrings = append(errorStrings, err.Error())
		}
	}

	if len(errorStrings) == 0 {
		return nil
	} else {
		return errors.New(strings.Join(errorStrings, "\n"))
	}
}

func (mc *MultiChecker) Add(checker Checker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.checkers = append(mc.checkers, checker)
}
