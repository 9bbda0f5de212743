package app

import (
	"context"
	"time"
)

// ChannelMode selects the content-acquisition path for a channel.
type ChannelMode string

const (
	// ModeSource relays recent videos from configured source accounts.
	ModeSource ChannelMode = "source"
	// ModeGenerated produces videos from the channel's topic list.
	ModeGenerated ChannelMode = "generated"
)

// Channel is one managed publishing destination with its own policy,
// credentials and content source.
type Channel struct {
	ID          int64       `yaml:"-" json:"id"`
	AccountName string      `yaml:"account_name" json:"account_name"`
	ChannelName string      `yaml:"channel_name" json:"channel_name"`
	Mode        ChannelMode `yaml:"mode" json:"mode"`

	// Publishing credentials/config, opaque to the processing core.
	Email       string `yaml:"email" json:"email,omitempty"`
	Password    string `yaml:"password" json:"password,omitempty"`
	CookiesPath string `yaml:"cookies_path" json:"cookies_path,omitempty"`
	WatchFolder string `yaml:"watch_folder" json:"watch_folder,omitempty"`
	Proxy       string `yaml:"proxy" json:"proxy,omitempty"`

	// Upload policy.
	UploadsPerDay   int `yaml:"uploads_per_day" json:"uploads_per_day"`
	MinDelaySeconds int `yaml:"min_delay_seconds" json:"min_delay_seconds"`

	// Generation settings.
	Quality     string `yaml:"quality" json:"quality,omitempty"`
	Lang        string `yaml:"lang" json:"lang,omitempty"`
	Voice       string `yaml:"voice" json:"voice,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`

	// Mode-specific payload: source account handles or generation topics.
	Sources []string `yaml:"sources" json:"sources,omitempty"`
	Topics  []string `yaml:"topics" json:"topics,omitempty"`

	CreatedAt time.Time `yaml:"-" json:"created_at"`
}

// MinDelay returns the channel's cooldown as a duration.
func (c Channel) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySeconds) * time.Second
}

// UploadRecord is one completed publish, as recorded in the ledger.
type UploadRecord struct {
	ChannelName string
	ItemID      string
	UploadedAt  time.Time
}

// Ledger is the append-only record of completed publishes. It backs both
// rate limiting and deduplication; implementations must treat Record as the
// sole durable marker of "done".
type Ledger interface {
	Record(ctx context.Context, channelName, itemID string, ts time.Time) error
	Recent(ctx context.Context, channelName string, since time.Time) ([]UploadRecord, error)
	Latest(ctx context.Context, channelName string) (*time.Time, error)
	Exists(ctx context.Context, channelName, itemID string) (bool, error)
	History(ctx context.Context, channelName string) ([]UploadRecord, error)
	// Reset clears history for one channel, or for all channels when
	// channelName is empty. Administrative use only.
	Reset(ctx context.Context, channelName string) error
}

// Registry is the durable store of channel configurations.
type Registry interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	GetChannel(ctx context.Context, name string) (*Channel, error)
}

// SourceItem is one candidate video discovered on a source platform.
type SourceItem struct {
	ID    string
	Title string
	URL   string
}
