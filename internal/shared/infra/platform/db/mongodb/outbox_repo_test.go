package mongodb

import (
	"encoding/json"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestOutboxDocument_RoundTrip(t *testing.T) {
	evt := sharedDomain.NewOutboxEvent("book", "agg-1", "book.created", map[string]string{"title": "Dune"})

	mo, err := toMongoOutboxEvent(evt)
	require.NoError(t, err)

	// Pasamos por BSON real para validar las etiquetas.
	raw, err := bson.Marshal(mo)
	require.NoError(t, err)
	var decoded mongoOutboxEvent
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	back, err := fromMongoOutboxEvent(&decoded)
	require.NoError(t, err)

	assert.Equal(t, evt.ID, back.ID)
	assert.Equal(t, "book.created", back.EventType)
	assert.WithinDuration(t, evt.CreatedAt, back.CreatedAt, time.Millisecond)
	assert.JSONEq(t, `{"title":"Dune"}`, string(back.Payload.(json.RawMessage)))
}

func TestFromMongoOutboxEvent_InvalidID(t *testing.T) {
	_, err := fromMongoOutboxEvent(&mongoOutboxEvent{ID: "nope"})
	assert.Error(t, err)
}
