package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	subjects []string
	err      error
}

func (r *recorder) Publish(_ context.Context, subject string, _ any) error {
	r.subjects = append(r.subjects, subject)
	return r.err
}

func TestEmit(t *testing.T) {
	r := &recorder{}
	Emit(context.Background(), r, SubjectRFPCreated, map[string]string{"id": "1"})
	assert.Equal(t, []string{SubjectRFPCreated}, r.subjects)
}

func TestEmit_SwallowsErrors(t *testing.T) {
	r := &recorder{err: errors.New("no servers")}
	assert.NotPanics(t, func() {
		Emit(context.Background(), r, SubjectRFPSent, nil)
	})
	Emit(context.Background(), nil, SubjectRFPSent, nil)
	assert.NoError(t, Nop{}.Publish(context.Background(), SubjectRFPSent, nil))
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1")
	assert.Error(t, err)
}
