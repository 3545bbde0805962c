package mongo

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xenking/pizza-kart/internal/domain/order"
)

func marshal(t *testing.T, v any) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	vw, err := bsonrw.NewBSONValueWriter(buf)
	require.NoError(t, err)
	enc, err := bson.NewEncoder(vw)
	require.NoError(t, err)
	require.NoError(t, enc.SetRegistry(NewRegistry()))
	require.NoError(t, enc.Encode(v))
	return buf.Bytes()
}

func unmarshal(t *testing.T, data []byte, v any) {
	t.Helper()

	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(data))
	require.NoError(t, err)
	require.NoError(t, dec.SetRegistry(NewRegistry()))
	require.NoError(t, dec.Decode(v))
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}

func TestDecimalCodec_RoundTrip(t *testing.T) {
	in := order.Document{
		"total":    decimal.RequireFromString("45.50"),
		"discount": decimal.Zero,
	}

	var raw bson.M
	unmarshal(t, marshal(t, in), &raw)
	_, ok := raw["total"].(primitive.Decimal128)
	assert.True(t, ok, "stored as Decimal128")

	var out struct {
		Total    decimal.Decimal  `bson:"total"`
		Discount decimal.Decimal  `bson:"discount"`
		Missing  *decimal.Decimal `bson:"missing"`
	}
	unmarshal(t, marshal(t, in), &out)
	assert.True(t, decimal.RequireFromString("45.5").Equal(out.Total))
	assert.True(t, out.Discount.IsZero())
	assert.Nil(t, out.Missing)
}

func TestDecimalCodec_DecodesLegacyNumbers(t *testing.T) {
	in := bson.M{"a": 12.5, "b": int32(7), "c": int64(9), "d": "3.25", "e": nil}

	var out struct {
		A decimal.Decimal `bson:"a"`
		B decimal.Decimal `bson:"b"`
		C decimal.Decimal `bson:"c"`
		D decimal.Decimal `bson:"d"`
		E decimal.Decimal `bson:"e"`
	}
	unmarshal(t, marshal(t, in), &out)

	assert.True(t, decimal.RequireFromString("12.5").Equal(out.A))
	assert.True(t, decimal.NewFromInt(7).Equal(out.B))
	assert.True(t, decimal.NewFromInt(9).Equal(out.C))
	assert.True(t, decimal.RequireFromString("3.25").Equal(out.D))
	assert.True(t, out.E.IsZero())
}

func TestStoredOrder_ToOrder(t *testing.T) {
	created := primitive.NewDateTimeFromTime(mustTime(t, "2026-02-03T04:05:06.789Z"))
	doc := bson.M{
		"_id":           "o1",
		"customerName":  "Ana",
		"customerPhone": "5511",
		"status":        "pending",
		"total":         decimal.RequireFromString("40"),
		"couponCode":    nil,
		"items": bson.A{bson.M{
			"menuItemId":  nil,
			"quantity":    int32(2),
			"price":       20.0,
			"subtotal":    40.0,
			"combination": nil,
		}},
		"createdAt": created,
		"updatedAt": "2026-02-03T05:00:00.000Z",
	}

	var s storedOrder
	unmarshal(t, marshal(t, doc), &s)
	o := s.toOrder()

	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "Ana", o.CustomerName)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Nil(t, o.CouponCode)
	assert.Equal(t, "2026-02-03T04:05:06.789Z", o.CreatedAt)
	assert.Equal(t, "2026-02-03T05:00:00.000Z", o.UpdatedAt)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(40).Equal(o.Items[0].Subtotal))
}
