package wire

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipfile/internal/message"
)

func TestWriteReadMsg(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ca, cb := New(a), New(b)

	sent := &message.Message{
		Type:  message.TypeStatusResponse,
		Offer: &message.OfferStatus{Intent: "copy", Paths: []string{"/x\ny"}},
	}
	go func() { _ = ca.WriteMsg(sent) }()

	got, err := cb.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeStatusResponse, got.Type)
	assert.Equal(t, []string{"/x\ny"}, got.Offer.Paths)
}

func TestReadMsgTooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte(`{"type":"ERROR","error":"` + strings.Repeat("x", MaxMessageSize) + "\"}\n"))
	}()
	_, err := New(b).ReadMsg()
	assert.ErrorContains(t, err, "too large")
}

func TestReadMsgMissingType(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() { _, _ = a.Write([]byte("{}\n")) }()
	_, err := New(b).ReadMsg()
	assert.ErrorContains(t, err, "missing type")
}
