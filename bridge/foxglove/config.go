package foxglove

// Channel IDs advertised to every client.
const (
	LocationChannelID uint64 = 1
	RawChannelID      uint64 = 2
)

const locationFixSchema = `{
  "type": "object",
  "properties": {
    "timestamp": {
      "type": "object",
      "properties": { "sec": { "type": "integer" }, "nsec": { "type": "integer" } }
    },
    "frame_id": { "type": "string" },
    "latitude": { "type": "number" },
    "longitude": { "type": "number" },
    "altitude": { "type": "number" },
    "position_covariance": { "type": "array", "items": { "type": "number" } },
    "position_covariance_type": { "type": "integer" }
  }
}`

const rawSchema = `{
  "type": "object",
  "properties": {
    "ts": { "type": "string" },
    "sender": { "type": "string" },
    "mode": { "type": "string" },
    "type": { "type": "string" },
    "data": { "type": "object", "additionalProperties": true }
  },
  "required": ["sender", "type"]
}`

type Config struct {
	Addr     string
	Name     string
	Topic    string // LocationFix topic
	RawTopic string
	FrameID  string
	SendBuf  int
}

func DefaultConfig() Config {
	return Config{
		Addr:     "127.0.0.1:8765",
		Name:     "xplanemap",
		Topic:    "/xplane/gps",
		RawTopic: "/xplane/packets",
		FrameID:  "xplane",
		SendBuf:  256,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Addr == "" {
		c.Addr = defaults.Addr
	}
	if c.Name == "" {
		c.Name = defaults.Name
	}
	if c.Topic == "" {
		c.Topic = defaults.Topic
	}
	if c.RawTopic == "" {
		c.RawTopic = defaults.RawTopic
	}
	if c.FrameID == "" {
		c.FrameID = defaults.FrameID
	}
	if c.SendBuf <= 0 {
		c.SendBuf = defaults.SendBuf
	}
	return c
}
