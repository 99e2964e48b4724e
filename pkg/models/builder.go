package models

import "time"

type FilterMessageBuilder struct {
	msg *FilterMessage
}

func NewFilterMessageBuilder() *FilterMessageBuilder {
	return &FilterMessageBuilder{
		msg: &FilterMessage{
			ResultInfo: ResultInfo{FilteringTime: make(FilteringTimes)},
		},
	}
}

func (b *FilterMessageBuilder) WithMessageID(id string) *FilterMessageBuilder {
	b.msg.MessageInfo.MessageID = id
	return b
}

func (b *FilterMessageBuilder) WithSource(mdn string) *FilterMessageBuilder {
	b.msg.MessageInfo.SourceMdn = mdn
	return b
}

func (b *FilterMessageBuilder) WithDestination(mdn string) *FilterMessageBuilder {
	b.msg.MessageInfo.DestinationMdn = mdn
	return b
}

func (b *FilterMessageBuilder) WithContent(content string) *FilterMessageBuilder {
	b.msg.MessageInfo.Content = content
	return b
}

func (b *FilterMessageBuilder) WithCustomer(info CustomerInfo) *FilterMessageBuilder {
	b.msg.CustomerInfo = info
	return b
}

func (b *FilterMessageBuilder) WithStartTime(t time.Time) *FilterMessageBuilder {
	b.msg.ResultInfo.FilterStartTime = t.UnixMilli()
	return b
}

func (b *FilterMessageBuilder) Build() *FilterMessage {
	if b.msg.ResultInfo.FilterStartTime == 0 {
		b.msg.ResultInfo.FilterStartTime = time.Now().UnixMilli()
	}
	return b.msg
}

// BuildJSON is Build followed by Marshal, for tests and tools that need a
// wire payload.
func (b *FilterMessageBuilder) BuildJSON() []byte {
	data, _ := b.Build().Marshal()
	return data
}
