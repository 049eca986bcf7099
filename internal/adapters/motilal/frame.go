// Package motilal implements the Motilal Oswal broker adapter: REST order
// and data APIs plus the proprietary fixed-width binary market-data feed.
package motilal

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openalgo/gateway/errs"
	"github.com/openalgo/gateway/internal/schema"
)

// The feed speaks fixed 30-byte little-endian frames. Byte 0 is the
// message-type tag, byte 1 the exchange code, bytes 2:6 the scrip token and
// bytes 6:10 the exchange time in epoch seconds. The remaining 20 bytes are
// the tag-specific body. Prices travel as int32 paise.
const (
	FrameSize  = 30
	headerSize = 10

	TagLTP       = 'L'
	TagOpen      = 'O'
	TagHigh      = 'H'
	TagLow       = 'W'
	TagClose     = 'C'
	TagOI        = 'I'
	TagDepth     = 'D'
	TagIndex     = 'X'
	TagHeartbeat = 'B'

	tagLogin       = 'Q'
	tagSubscribe   = 'S'
	tagUnsubscribe = 'U'

	clientCodeWidth = 30
	authTokenWidth  = 100
	apiKeyWidth     = 30

	// LoginFrameSize is tag + clientCode + authToken + apiKey.
	LoginFrameSize = 1 + clientCodeWidth + authTokenWidth + apiKeyWidth

	// SubscribeFrameSize is tag + exchange code + scrip token.
	SubscribeFrameSize = 6

	depthSideBid = 0
	depthSideAsk = 1
	depthLevels  = 5
)

var exchangeCodes = map[byte]schema.Exchange{
	1: schema.ExchangeNSE,
	2: schema.ExchangeNFO,
	3: schema.ExchangeBSE,
	4: schema.ExchangeBFO,
	5: schema.ExchangeCDS,
	6: schema.ExchangeMCX,
	7: schema.ExchangeNSEIndex,
	8: schema.ExchangeBSEIndex,
}

var exchangeBytes = func() map[schema.Exchange]byte {
	m := make(map[schema.Exchange]byte, len(exchangeCodes))
	for code, exch := range exchangeCodes {
		m[exch] = code
	}
	return m
}()

// Header is the fixed prefix shared by every market frame.
type Header struct {
	Tag      byte
	Exchange schema.Exchange
	Token    uint32
	Time     time.Time
}

// Frame is one decoded 30-byte market packet. Exactly one of the payload
// groups below is meaningful depending on Tag.
type Frame struct {
	Header

	// TagLTP
	LastPrice string
	LastQty   int32
	Volume    int32
	AvgPrice  string

	// TagOpen, TagHigh, TagLow, TagClose, TagIndex
	Price string
	// TagIndex only
	NetChange string

	// TagOI
	OpenInterest int32
	OIChange     int32

	// TagDepth: one book row per frame
	DepthSide   byte
	DepthLevel  byte
	DepthPrice  string
	DepthQty    int32
	DepthOrders int16
}

// paise converts an int32 paise amount to a rupee decimal string.
func paise(v int32) string {
	return decimal.New(int64(v), -2).String()
}

func padded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

// EncodeLogin builds the struct-packed login frame sent immediately after
// dial. Fields are space-padded to their fixed widths.
func EncodeLogin(clientCode, authToken, apiKey string) ([]byte, error) {
	if len(clientCode) > clientCodeWidth || len(authToken) > authTokenWidth || len(apiKey) > apiKeyWidth {
		return nil, errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("login credential exceeds fixed field width"))
	}
	buf := make([]byte, LoginFrameSize)
	buf[0] = tagLogin
	padded(buf[1:1+clientCodeWidth], clientCode)
	padded(buf[1+clientCodeWidth:1+clientCodeWidth+authTokenWidth], authToken)
	padded(buf[1+clientCodeWidth+authTokenWidth:], apiKey)
	return buf, nil
}

// EncodeSubscribe builds the 6-byte subscribe frame for one scrip.
func EncodeSubscribe(exchange schema.Exchange, token uint32) ([]byte, error) {
	return encodeControl(tagSubscribe, exchange, token)
}

// EncodeUnsubscribe builds the 6-byte unsubscribe frame for one scrip.
func EncodeUnsubscribe(exchange schema.Exchange, token uint32) ([]byte, error) {
	return encodeControl(tagUnsubscribe, exchange, token)
}

func encodeControl(tag byte, exchange schema.Exchange, token uint32) ([]byte, error) {
	code, ok := exchangeBytes[exchange]
	if !ok {
		return nil, errs.New(brokerName, errs.CodeInvalid,
			errs.WithMessage("exchange not carried on feed: "+string(exchange)))
	}
	buf := make([]byte, SubscribeFrameSize)
	buf[0] = tag
	buf[1] = code
	binary.LittleEndian.PutUint32(buf[2:6], token)
	return buf, nil
}

// Decode parses one 30-byte market frame.
func Decode(data []byte) (Frame, error) {
	if len(data) != FrameSize {
		return Frame{}, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("short market frame"),
			errs.WithVenueField("frame_len", strconv.Itoa(len(data))))
	}
	tag := data[0]
	frame := Frame{Header: Header{Tag: tag}}
	if tag == TagHeartbeat {
		return frame, nil
	}
	exch, ok := exchangeCodes[data[1]]
	if !ok {
		return Frame{}, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("unknown exchange code on feed"),
			errs.WithVenueField("exchange_code", strconv.Itoa(int(data[1]))))
	}
	frame.Exchange = exch
	frame.Token = binary.LittleEndian.Uint32(data[2:6])
	frame.Time = time.Unix(int64(binary.LittleEndian.Uint32(data[6:10])), 0)

	body := data[headerSize:]
	switch tag {
	case TagLTP:
		frame.LastPrice = paise(int32(binary.LittleEndian.Uint32(body[0:4])))
		frame.LastQty = int32(binary.LittleEndian.Uint32(body[4:8]))
		frame.Volume = int32(binary.LittleEndian.Uint32(body[8:12]))
		frame.AvgPrice = paise(int32(binary.LittleEndian.Uint32(body[12:16])))
	case TagOpen, TagHigh, TagLow, TagClose:
		frame.Price = paise(int32(binary.LittleEndian.Uint32(body[0:4])))
	case TagIndex:
		frame.Price = paise(int32(binary.LittleEndian.Uint32(body[0:4])))
		frame.NetChange = paise(int32(binary.LittleEndian.Uint32(body[4:8])))
	case TagOI:
		frame.OpenInterest = int32(binary.LittleEndian.Uint32(body[0:4]))
		frame.OIChange = int32(binary.LittleEndian.Uint32(body[4:8]))
	case TagDepth:
		frame.DepthSide = body[0]
		frame.DepthLevel = body[1]
		if frame.DepthSide > depthSideAsk || frame.DepthLevel >= depthLevels {
			return Frame{}, errs.New(brokerName, errs.CodeBroker,
				errs.WithMessage("depth row out of range"),
				errs.WithVenueField("side", strconv.Itoa(int(frame.DepthSide))),
				errs.WithVenueField("level", strconv.Itoa(int(frame.DepthLevel))))
		}
		frame.DepthPrice = paise(int32(binary.LittleEndian.Uint32(body[2:6])))
		frame.DepthQty = int32(binary.LittleEndian.Uint32(body[6:10]))
		frame.DepthOrders = int16(binary.LittleEndian.Uint16(body[10:12]))
	default:
		return Frame{}, errs.New(brokerName, errs.CodeBroker,
			errs.WithMessage("unknown frame tag"),
			errs.WithVenueField("tag", string(tag)))
	}
	return frame, nil
}
