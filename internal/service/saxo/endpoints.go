package saxo

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"SaxoBridge/internal/domain/models"
)

// AssetTypes lists the asset types offered by the lookup dialog.
// The empty entry searches every type.
var AssetTypes = []string{
	"",
	"Bond", "Cash", "CBBCCategoryN", "CBBCCategoryR",
	"CertificateBonus", "CertificateCappedBonus", "CertificateCappedCapitalProtected",
	"CertificateCappedOutperformance", "CertificateConstantLeverage", "CertificateDiscount",
	"CertificateExpress", "CertificateTracker", "CertificateUncappedCapitalProtection",
	"CertificateUncappedOutperformance",
	"CfdIndexOption", "CfdOnCompanyWarrant", "CfdOnEtc", "CfdOnEtf", "CfdOnEtn",
	"CfdOnFund", "CfdOnFutures", "CfdOnIndex", "CfdOnRights", "CfdOnStock",
	"CompanyWarrant", "ContractFutures",
	"Etc", "Etf", "Etn", "Fund", "FuturesOption", "FuturesStrategy",
	"FxBinaryOption", "FxForwards", "FxKnockInOption", "FxKnockOutOption",
	"FxNoTouchOption", "FxOneTouchOption", "FxSpot", "FxVanillaOption",
	"GuaranteeNote", "InlineWarrant", "IpoOnStock", "ManagedFund", "MiniFuture",
	"MutualFund", "PortfolioNote", "Rights", "SrdOnEtf", "SrdOnStock",
	"Stock", "StockIndex", "StockIndexOption", "StockOption",
	"Warrant", "WarrantDoubleKnockOut", "WarrantKnockOut", "WarrantOpenEndKnockOut", "WarrantSpread",
}

// FieldGroups are requested on every price subscription.
var FieldGroups = []string{"PriceInfo", "PriceInfoDetails", "Quote", "Timestamps"}

var horizons = map[string]int{
	"1min":  1,
	"day":   1440,
	"week":  10080,
	"month": 43200,
}

// Horizon maps a history period onto the chart horizon in minutes.
func Horizon(period string) (int, error) {
	h, ok := horizons[period]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported period %q", models.ErrInvalidRequest, period)
	}
	return h, nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ContextID derives the streaming context id of a user.
func ContextID(user string) string {
	return md5hex(user)
}

// ReferenceID derives the subscription reference id. The instrument id
// leads so ticks can be attributed without extra state.
func ReferenceID(user, assetType, uic string) string {
	return uic + "-" + md5hex(user+"."+assetType+"."+uic)
}

// Endpoints holds the upstream base URLs.
type Endpoints struct {
	AuthURL    string
	APIBaseURL string
	StreamBase string
	ExtendBase string
}

// NewEndpoints builds endpoints from config values. wsHost may be a bare
// host path ("streaming.example.com/openapi/streamingws") or carry a
// ws:// or wss:// scheme.
func NewEndpoints(authURL, apiBaseURL, wsHost string) Endpoints {
	stream := wsHost
	if !strings.Contains(stream, "://") {
		stream = "wss://" + stream
	}
	stream = strings.TrimRight(stream, "/")
	extend := strings.Replace(stream, "wss://", "https://", 1)
	extend = strings.Replace(extend, "ws://", "http://", 1)
	return Endpoints{
		AuthURL:    strings.TrimRight(authURL, "/"),
		APIBaseURL: strings.TrimRight(apiBaseURL, "/"),
		StreamBase: stream,
		ExtendBase: extend,
	}
}

// AuthorizeURL is where a user grants access; state comes back on the callback.
func (e Endpoints) AuthorizeURL(clientID, state, redirectURL string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("state", state)
	q.Set("redirect_uri", redirectURL)
	return e.AuthURL + "/authorize?" + q.Encode()
}

// TokenURL is the OAuth token endpoint.
func (e Endpoints) TokenURL() string {
	return e.AuthURL + "/token"
}

// StreamURL is the websocket connect URL for a context.
func (e Endpoints) StreamURL(token, contextID string) string {
	return e.StreamBase + "/connect?authorization=" + url.QueryEscape("BEARER "+token) +
		"&contextId=" + url.QueryEscape(contextID)
}

// ExtendURL re-authorizes a live streaming context.
func (e Endpoints) ExtendURL(contextID string) string {
	return e.ExtendBase + "/authorize?contextid=" + url.QueryEscape(contextID)
}

func (e Endpoints) subscriptionsURL() string {
	return e.APIBaseURL + "/trade/v1/prices/subscriptions"
}

func (e Endpoints) subscriptionURL(contextID, referenceID string) string {
	return e.subscriptionsURL() + "/" + url.PathEscape(contextID) + "/" + url.PathEscape(referenceID)
}

func (e Endpoints) instrumentsURL() string {
	return e.APIBaseURL + "/ref/v1/instruments/"
}

func (e Endpoints) chartURL() string {
	return e.APIBaseURL + "/chart/v1/charts/"
}
