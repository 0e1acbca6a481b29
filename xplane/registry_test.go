package xplane

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attitude is a test-only message type used to exercise registration.
type attitude struct {
	Heading string
}

func (attitude) Type() string { return "XATT" }

func parseAttitude(fields []string, _ time.Time) (Message, error) {
	if len(fields) < 1 {
		return nil, fmt.Errorf("%w: XATT needs a heading", ErrFieldCount)
	}
	return attitude{Heading: strings.TrimSpace(fields[0])}, nil
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{TypeGPS}, r.Codes())

	_, ok := r.Lookup(TypeGPS)
	assert.True(t, ok)
	_, ok = r.Lookup("XATT")
	assert.False(t, ok)
}

func TestRegistryRegister(t *testing.T) {
	r := DefaultRegistry()
	require.NoError(t, r.Register("XATT", parseAttitude))
	assert.Equal(t, []string{"XATT", TypeGPS}, r.Codes())

	d := NewDecoder(WithDecoderRegistry(r))
	sender, msg, err := d.Decode([]byte("XATT1,271.5,2.0,-1.0"))
	require.NoError(t, err)
	assert.Equal(t, "1", sender)
	assert.Equal(t, attitude{Heading: "271.5"}, msg)

	// GPS decoding is unaffected.
	_, msg, err = d.Decode([]byte("XGPS1,1,2,3,4,5"))
	require.NoError(t, err)
	assert.Equal(t, TypeGPS, msg.Type())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := DefaultRegistry()
	require.NoError(t, r.Register(TypeGPS, func([]string, time.Time) (Message, error) {
		return GPSFix{Speed: 99}, nil
	}))

	_, msg, err := NewDecoder(WithDecoderRegistry(r)).Decode([]byte("XGPS1,garbage"))
	require.NoError(t, err)
	assert.Equal(t, GPSFix{Speed: 99}, msg)
}

func TestDecodeRejectsMismatchedType(t *testing.T) {
	r := DefaultRegistry()
	require.NoError(t, r.Register("ABCD", func([]string, time.Time) (Message, error) {
		return GPSFix{}, nil
	}))
	require.NoError(t, r.Register(TypeGPS, func([]string, time.Time) (Message, error) {
		return attitude{Heading: "wrong"}, nil
	}))
	d := NewDecoder(WithDecoderRegistry(r))

	sender, msg, err := d.Decode([]byte("ABCD1,1"))
	assert.Nil(t, msg)
	assert.Equal(t, "1", sender)
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), `"ABCD" decoded as "XGPS"`)

	_, msg, err = d.Decode([]byte("XGPS2,1,2,3,4,5"))
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDecodeRejectsNilMessage(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("NILM", func([]string, time.Time) (Message, error) {
		return nil, nil
	}))

	_, msg, err := NewDecoder(WithDecoderRegistry(r)).Decode([]byte("NILM1,1"))
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("XAT", parseAttitude))
	assert.Error(t, r.Register("XATTS", parseAttitude))
	assert.Error(t, r.Register("XATT", nil))
	assert.Empty(t, r.Codes())
}

func TestEmptyRegistryRejectsEverything(t *testing.T) {
	d := NewDecoder(WithDecoderRegistry(NewRegistry()))
	_, msg, err := d.Decode([]byte("XGPS2,1,2,3,4,5"))
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrUnknownType)
}
