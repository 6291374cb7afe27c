package pipeline

import (
	"context"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

// memStore is an in-memory reference store with a small nationwide cross
// section: Tokyo (residence addressing), a county town in Fukushima whose
// name collides with Ishikawa prefecture (parcel addressing), a designated
// city ward, and a suffix-collision case.
type memStore struct {
	prefs   []domain.PrefectureInfo
	cities  []domain.CityInfo
	towns   map[string][]domain.TownInfo
	blocks  map[string][]domain.RsdtBlkInfo
	details map[string][]domain.RsdtDspInfo
	parcels map[string][]domain.ParcelInfo
}

func (m *memStore) Prefectures(ctx context.Context) ([]domain.PrefectureInfo, error) {
	return m.prefs, nil
}
func (m *memStore) Cities(ctx context.Context) ([]domain.CityInfo, error) {
	return m.cities, nil
}
func (m *memStore) Towns(ctx context.Context, cityKey string) ([]domain.TownInfo, error) {
	return m.towns[cityKey], nil
}
func (m *memStore) ResidenceBlocks(ctx context.Context, townKey string) ([]domain.RsdtBlkInfo, error) {
	return m.blocks[townKey], nil
}
func (m *memStore) ResidenceDetails(ctx context.Context, rsdtBlkKey string) ([]domain.RsdtDspInfo, error) {
	return m.details[rsdtBlkKey], nil
}
func (m *memStore) Parcels(ctx context.Context, townKey string) ([]domain.ParcelInfo, error) {
	return m.parcels[townKey], nil
}

func pt(v float64) *float64 { return &v }

func cityKeyOf(lgCode string) string {
	return domain.DeriveKey(lgCode, "", "", "", "", "")
}

func townKeyOf(lgCode, machiazaID, flg string) string {
	return domain.DeriveKey(lgCode, machiazaID, "", "", "", flg)
}

func newFixtureStore() *memStore {
	prefKey := func(lg string) string { return domain.DeriveKey(lg, "", "", "", "", "") }

	const (
		lgHokkaido  = "010006"
		lgTokyo     = "130001"
		lgFukushima = "070004"
		lgIshikawa  = "170003"
		lgOsaka     = "270008"

		lgChiyoda      = "131016"
		lgHachioji     = "132012"
		lgSapporoChuo  = "011011"
		lgOsakaKita    = "271276"
		lgIshikawaTown = "075019"
	)

	prefs := []domain.PrefectureInfo{
		{PrefKey: prefKey(lgHokkaido), LgCode: lgHokkaido, Pref: "北海道", RepLat: pt(43.064), RepLon: pt(141.347)},
		{PrefKey: prefKey(lgTokyo), LgCode: lgTokyo, Pref: "東京都", RepLat: pt(35.690), RepLon: pt(139.692)},
		{PrefKey: prefKey(lgFukushima), LgCode: lgFukushima, Pref: "福島県", RepLat: pt(37.750), RepLon: pt(140.468)},
		{PrefKey: prefKey(lgIshikawa), LgCode: lgIshikawa, Pref: "石川県", RepLat: pt(36.595), RepLon: pt(136.626)},
		{PrefKey: prefKey(lgOsaka), LgCode: lgOsaka, Pref: "大阪府", RepLat: pt(34.686), RepLon: pt(135.520)},
	}

	cities := []domain.CityInfo{
		{CityKey: cityKeyOf(lgChiyoda), PrefKey: prefKey(lgTokyo), LgCode: lgChiyoda,
			Pref: "東京都", City: "千代田区", RepLat: pt(35.694), RepLon: pt(139.754)},
		{CityKey: cityKeyOf(lgHachioji), PrefKey: prefKey(lgTokyo), LgCode: lgHachioji,
			Pref: "東京都", City: "八王子市", RepLat: pt(35.666), RepLon: pt(139.316)},
		{CityKey: cityKeyOf(lgSapporoChuo), PrefKey: prefKey(lgHokkaido), LgCode: lgSapporoChuo,
			Pref: "北海道", City: "札幌市", Ward: "中央区", RepLat: pt(43.055), RepLon: pt(141.341)},
		{CityKey: cityKeyOf(lgOsakaKita), PrefKey: prefKey(lgOsaka), LgCode: lgOsakaKita,
			Pref: "大阪府", City: "大阪市", Ward: "北区", RepLat: pt(34.705), RepLon: pt(135.498)},
		{CityKey: cityKeyOf(lgIshikawaTown), PrefKey: prefKey(lgFukushima), LgCode: lgIshikawaTown,
			Pref: "福島県", County: "石川郡", City: "石川町", RepLat: pt(37.157), RepLon: pt(140.452)},
	}

	marunouchiKey := townKeyOf(lgChiyoda, "0001001", "1")
	otemachiKey := townKeyOf(lgChiyoda, "0002001", "1")
	shimoizumiKey := townKeyOf(lgIshikawaTown, "0001000", "0")
	motohongoKey := townKeyOf(lgHachioji, "0003003", "1")
	kitaichijoKey := townKeyOf(lgSapporoChuo, "0001002", "1")

	towns := map[string][]domain.TownInfo{
		cityKeyOf(lgChiyoda): {
			{TownKey: marunouchiKey, CityKey: cityKeyOf(lgChiyoda), PrefKey: prefKey(lgTokyo),
				LgCode: lgChiyoda, RsdtAddrFlg: "1", Pref: "東京都", City: "千代田区",
				OazaCho: "丸の内", Chome: "一丁目", MachiazaID: "0001001", Key: "丸の内1-",
				RepLat: pt(35.6817), RepLon: pt(139.7652)},
			{TownKey: otemachiKey, CityKey: cityKeyOf(lgChiyoda), PrefKey: prefKey(lgTokyo),
				LgCode: lgChiyoda, RsdtAddrFlg: "1", Pref: "東京都", City: "千代田区",
				OazaCho: "大手町", Chome: "一丁目", MachiazaID: "0002001", Key: "大手町1-",
				RepLat: pt(35.6874), RepLon: pt(139.7649)},
		},
		cityKeyOf(lgIshikawaTown): {
			{TownKey: shimoizumiKey, CityKey: cityKeyOf(lgIshikawaTown), PrefKey: prefKey(lgFukushima),
				LgCode: lgIshikawaTown, RsdtAddrFlg: "0", Pref: "福島県", County: "石川郡", City: "石川町",
				OazaCho: "下泉", MachiazaID: "0001000", Key: "下泉",
				RepLat: pt(37.1573), RepLon: pt(140.4522)},
		},
		cityKeyOf(lgHachioji): {
			{TownKey: motohongoKey, CityKey: cityKeyOf(lgHachioji), PrefKey: prefKey(lgTokyo),
				LgCode: lgHachioji, RsdtAddrFlg: "1", Pref: "東京都", City: "八王子市",
				OazaCho: "元本郷町", Chome: "三丁目", MachiazaID: "0003003", Key: "元本郷町3-",
				RepLat: pt(35.6669), RepLon: pt(139.3243)},
		},
		cityKeyOf(lgSapporoChuo): {
			{TownKey: kitaichijoKey, CityKey: cityKeyOf(lgSapporoChuo), PrefKey: prefKey(lgHokkaido),
				LgCode: lgSapporoChuo, RsdtAddrFlg: "1", Pref: "北海道", City: "札幌市", Ward: "中央区",
				OazaCho: "北一条西", Chome: "二丁目", MachiazaID: "0001002", Key: "北1条西2-",
				RepLat: pt(43.0610), RepLon: pt(141.3539)},
		},
	}

	blkKey := domain.DeriveKey(lgChiyoda, "0001001", "008", "", "", "")
	blocks := map[string][]domain.RsdtBlkInfo{
		marunouchiKey: {
			{RsdtBlkKey: blkKey, TownKey: marunouchiKey, CityKey: cityKeyOf(lgChiyoda),
				LgCode: lgChiyoda, MachiazaID: "0001001", Block: "8", BlockID: "008",
				RepLat: pt(35.68150), RepLon: pt(139.76663)},
		},
		// Block only, no residence numbers under it.
		kitaichijoKey: {
			{RsdtBlkKey: domain.DeriveKey(lgSapporoChuo, "0001002", "001", "", "", ""),
				TownKey: kitaichijoKey, CityKey: cityKeyOf(lgSapporoChuo),
				LgCode: lgSapporoChuo, MachiazaID: "0001002", Block: "1", BlockID: "001",
				RepLat: pt(43.0612), RepLon: pt(141.3548)},
		},
	}

	details := map[string][]domain.RsdtDspInfo{
		blkKey: {
			{RsdtDspKey: domain.DeriveKey(lgChiyoda, "0001001", "008", "001", "", ""),
				RsdtBlkKey: blkKey, RsdtNum: "1", RsdtID: "001",
				RepLat: pt(35.68144), RepLon: pt(139.76693)},
			{RsdtDspKey: domain.DeriveKey(lgChiyoda, "0001001", "008", "001", "002", ""),
				RsdtBlkKey: blkKey, RsdtNum: "1", RsdtID: "001", RsdtNum2: "2", Rsdt2ID: "002",
				RepLat: pt(35.68141), RepLon: pt(139.76699)},
		},
	}

	parcels := map[string][]domain.ParcelInfo{
		shimoizumiKey: {
			{ParcelKey: domain.DeriveKey(lgIshikawaTown, "0001000", "000026900001", "", "", ""),
				TownKey: shimoizumiKey, LgCode: lgIshikawaTown, MachiazaID: "0001000",
				PrcNum1: "269", PrcNum2: "1", PrcID: "000026900001",
				RepLat: pt(37.1570), RepLon: pt(140.4519)},
			{ParcelKey: domain.DeriveKey(lgIshikawaTown, "0001000", "000026900000", "", "", ""),
				TownKey: shimoizumiKey, LgCode: lgIshikawaTown, MachiazaID: "0001000",
				PrcNum1: "269", PrcID: "000026900000",
				RepLat: pt(37.1571), RepLon: pt(140.4520)},
		},
	}

	return &memStore{
		prefs:   prefs,
		cities:  cities,
		towns:   towns,
		blocks:  blocks,
		details: details,
		parcels: parcels,
	}
}
