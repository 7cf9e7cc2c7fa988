package coorderrors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"duplicate location": {
			err:  &ErrDuplicateLocation{Name: "mesos-abc"},
			want: `location "mesos-abc" is already defined`,
		},
		"duplicate location with spec": {
			err:  &ErrDuplicateLocation{Name: "mesos-abc", ExistingSpec: "mesos:abc"},
			want: `location "mesos-abc" is already defined: mesos:abc`,
		},
		"invalid state": {
			err:  &ErrInvalidState{Component: "cluster", State: "Starting", Action: "start"},
			want: "cannot start cluster in state Starting",
		},
		"invalid state without state": {
			err:  &ErrInvalidState{Component: "marathon location", Action: "obtain", Message: "missing caller"},
			want: "cannot obtain marathon location; missing caller",
		},
		"unsupported workload": {
			err:  &ErrUnsupportedWorkload{Workload: "web", Framework: "marathon"},
			want: "workload web is not supported by framework marathon",
		},
		"no capacity": {
			err:  &ErrNoCapacity{Framework: "marathon"},
			want: "no capacity available on framework marathon",
		},
		"not found": {
			err:  &ErrNotFound{Type: "task", Value: "web-1"},
			want: `resource "web-1" of type "task" does not exist`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestErrorsAs_ThroughWrapping(t *testing.T) {
	err := errors.WithMessage(&ErrDuplicateLocation{Name: "foo"}, "creating location")

	var e *ErrDuplicateLocation
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "foo", e.Name)
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("foo")))
	assert.True(t, IsFatal(NewFatal(errors.New("foo"))))
	assert.True(t, IsFatal(errors.Wrap(NewFatal(errors.New("foo")), "bar")))
	assert.Nil(t, NewFatal(nil))
}
