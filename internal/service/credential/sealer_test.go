package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := sealer.Seal("handle-1", []byte("secret blob"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret blob")

	plain, err := sealer.Open("handle-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret blob", string(plain))
}

func TestSealerBindsHandle(t *testing.T) {
	sealer, err := NewSealer("s3cret")
	require.NoError(t, err)

	sealed, err := sealer.Seal("handle-1", []byte("blob"))
	require.NoError(t, err)

	_, err = sealer.Open("handle-2", sealed)
	assert.ErrorIs(t, err, ErrSealedBlobInvalid)
}

func TestSealerRejectsTampering(t *testing.T) {
	sealer, err := NewSealer("s3cret")
	require.NoError(t, err)

	sealed, err := sealer.Seal("h", []byte("blob"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = sealer.Open("h", sealed)
	assert.ErrorIs(t, err, ErrSealedBlobInvalid)

	_, err = sealer.Open("h", []byte("short"))
	assert.ErrorIs(t, err, ErrSealedBlobInvalid)
}

func TestNilSealerPassesThrough(t *testing.T) {
	var sealer *Sealer
	sealed, err := sealer.Seal("h", []byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, "blob", string(sealed))

	plain, err := sealer.Open("h", sealed)
	require.NoError(t, err)
	assert.Equal(t, "blob", string(plain))
}

func TestNewSealerRequiresSecret(t *testing.T) {
	_, err := NewSealer("")
	assert.Error(t, err)
}
