package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	lat, lon := 35.679107172, 139.765369485
	q := domain.Query{
		Input:       "東京都千代田区丸の内1-1-1",
		MatchLevel:  domain.LevelResidentialDetail,
		MatchedCnt:  14,
		LgCode:      "131016",
		Pref:        "東京都",
		City:        "千代田区",
		OazaCho:     "丸の内",
		Chome:       "一丁目",
		MachiazaID:  "0001001",
		BlockID:     "001",
		RsdtID:      "001",
		RsdtAddrFlg: "1",
		Lat:         &lat,
		Lon:         &lon,
	}

	msg, err := serializeToMessage(q)
	require.NoError(t, err)

	wantKey := domain.DeriveKey("131016", "0001001", "001", "001", "", "1")
	assert.Equal(t, []byte(wantKey), msg.Key)
	assert.Contains(t, string(msg.Value), `"match_level":"residential_detail"`)
	assert.Contains(t, string(msg.Value), `"machiaza":"丸の内一丁目"`)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "match_level", msg.Headers[0].Key)
	assert.Equal(t, []byte("residential_detail"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
}

func TestSerializeToMessageUnresolvedCoordinates(t *testing.T) {
	q := domain.Query{
		Input:      "存在しない住所",
		MatchLevel: domain.LevelUnknown,
	}

	msg, err := serializeToMessage(q)
	require.NoError(t, err)

	assert.Contains(t, string(msg.Value), `"lat":null`)
	assert.Contains(t, string(msg.Value), `"lon":null`)
	assert.Equal(t, []byte("match_level"), []byte(msg.Headers[0].Key))
}
