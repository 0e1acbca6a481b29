package foxglove

import "encoding/binary"

const (
	Subprotocol = "foxglove.websocket.v1"

	OpServerInfo  = "serverInfo"
	OpAdvertise   = "advertise"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"

	BinaryOpMessageData = 0x01
)

type ServerInfoMsg struct {
	Op                 string            `json:"op"`
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	SupportedEncodings []string          `json:"supportedEncodings,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	SessionID          string            `json:"sessionId,omitempty"`
}

type Channel struct {
	ID             uint64 `json:"id"`
	Topic          string `json:"topic"`
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	SchemaEncoding string `json:"schemaEncoding,omitempty"`
	Schema         string `json:"schema,omitempty"`
}

type AdvertiseMsg struct {
	Op       string    `json:"op"`
	Channels []Channel `json:"channels"`
}

type Subscription struct {
	ID        uint32 `json:"id"`
	ChannelID uint64 `json:"channelId"`
}

type SubscribeMsg struct {
	Op            string         `json:"op"`
	Subscriptions []Subscription `json:"subscriptions"`
}

type UnsubscribeMsg struct {
	Op              string   `json:"op"`
	SubscriptionIDs []uint32 `json:"subscriptionIds"`
}

type Time struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

// Position covariance types of foxglove.LocationFix.
const (
	CovarianceUnknown uint8 = 0
)

// LocationFix mirrors the foxglove.LocationFix schema.
type LocationFix struct {
	Timestamp              Time       `json:"timestamp"`
	FrameID                string     `json:"frame_id"`
	Latitude               float64    `json:"latitude"`
	Longitude              float64    `json:"longitude"`
	Altitude               float64    `json:"altitude"`
	PositionCovariance     [9]float64 `json:"position_covariance"`
	PositionCovarianceType uint8      `json:"position_covariance_type"`
}

// RawMessage carries any decoded message as JSON.
type RawMessage struct {
	TS     string `json:"ts"`
	Sender string `json:"sender"`
	Mode   string `json:"mode"`
	Type   string `json:"type"`
	Data   any    `json:"data,omitempty"`
}

// EncodeMessageData frames payload as a binary messageData op:
// [op][subscription id LE u32][log time LE u64][payload].
func EncodeMessageData(subscriptionID uint32, logTime uint64, payload []byte) []byte {
	out := make([]byte, 1+4+8+len(payload))
	out[0] = BinaryOpMessageData
	binary.LittleEndian.PutUint32(out[1:5], subscriptionID)
	binary.LittleEndian.PutUint64(out[5:13], logTime)
	copy(out[13:], payload)
	return out
}
