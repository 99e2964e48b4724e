package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FilterMessage is the unit passed between filter stages.
type FilterMessage struct {
	MessageInfo  MessageInfo  `json:"messageInfo"`
	CustomerInfo CustomerInfo `json:"customerInfo"`
	ResultInfo   ResultInfo   `json:"resultInfo"`
}

type MessageInfo struct {
	MessageID      string         `json:"messageId,omitempty"`
	MessageType    int32          `json:"messageType,omitempty"`
	SourceMdn      string         `json:"sourceMdn,omitempty"`
	DestinationMdn string         `json:"destinationMdn"`
	CallbackNumber string         `json:"callbackNumber,omitempty"`
	Subject        string         `json:"subject,omitempty"`
	Content        string         `json:"content,omitempty"`
	MediaContents  []MediaContent `json:"mediaContents,omitempty"`
	ReceivedTime   int64          `json:"receivedTime,omitempty"`
}

type MediaContent struct {
	ContentType *int32  `json:"contentType,omitempty"`
	ContentSize *int32  `json:"contentSize,omitempty"`
	ContentURL  *string `json:"contentUrl,omitempty"`
	EncryptFlag *int32  `json:"encryptFlag,omitempty"`
	DecodingKey *string `json:"decodingKey,omitempty"`
}

type CustomerInfo struct {
	CustomerID  string `json:"customerId,omitempty"`
	Mdn         string `json:"mdn,omitempty"`
	ServiceType int32  `json:"serviceType,omitempty"`
	SpamBlock   int32  `json:"spamBlock,omitempty"`
	TraceFlag   int32  `json:"traceFlag"`
}

type ResultInfo struct {
	SMPPResult      int32          `json:"smppResult"`
	ResultCode      int32          `json:"resultCode"`
	ReasonCode      int32          `json:"reasonCode"`
	SpamPattern1    string         `json:"spamPattern1"`
	SpamPattern2    *string        `json:"spamPattern2,omitempty"`
	SpamPattern3    *string        `json:"spamPattern3,omitempty"`
	ImageFileName   *string        `json:"imageFileName,omitempty"`
	FilterStartTime int64          `json:"filterStartTime"`
	FilterEndTime   int64          `json:"filterEndTime"`
	FilteringTime   FilteringTimes `json:"filteringTime"`
}

type FilteringTime struct {
	FilterName string `json:"filterName"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
}

// FilteringTimes is keyed by filter name and travels as a JSON array.
type FilteringTimes map[string]FilteringTime

func (f FilteringTimes) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]FilteringTime, 0, len(f))
	for _, name := range names {
		list = append(list, f[name])
	}
	return json.Marshal(list)
}

func (f *FilteringTimes) UnmarshalJSON(data []byte) error {
	var list []FilteringTime
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("filteringTime: %w", err)
	}

	out := make(FilteringTimes, len(list))
	for _, item := range list {
		out[item.FilterName] = item
	}
	*f = out
	return nil
}

// Record stores the processing interval for filter.
func (r *ResultInfo) Record(filter string, start, end time.Time) {
	if r.FilteringTime == nil {
		r.FilteringTime = make(FilteringTimes)
	}
	r.FilteringTime[filter] = FilteringTime{
		FilterName: filter,
		StartTime:  start.UnixMilli(),
		EndTime:    end.UnixMilli(),
	}
}

// SetResult fills the three result codes in one go.
func (r *ResultInfo) SetResult(smpp, result, reason int32) {
	r.SMPPResult = smpp
	r.ResultCode = result
	r.ReasonCode = reason
}

var requiredSections = []string{"messageInfo", "customerInfo", "resultInfo"}

// ParseFilterMessage decodes payload. messageInfo, customerInfo and
// resultInfo must all be present and be JSON objects.
func ParseFilterMessage(payload []byte) (*FilterMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, &ValidationError{Field: "payload", Message: "JSON parse error: " + err.Error()}
	}

	for _, name := range requiredSections {
		raw, ok := top[name]
		if !ok {
			return nil, &ValidationError{Field: name, Message: "not found"}
		}
		if !isObject(raw) {
			return nil, &ValidationError{Field: name, Message: "invalid type, object expected"}
		}
	}

	var msg FilterMessage
	if err := json.Unmarshal(top["messageInfo"], &msg.MessageInfo); err != nil {
		return nil, &ValidationError{Field: "messageInfo", Message: err.Error()}
	}
	if err := json.Unmarshal(top["customerInfo"], &msg.CustomerInfo); err != nil {
		return nil, &ValidationError{Field: "customerInfo", Message: err.Error()}
	}
	if err := json.Unmarshal(top["resultInfo"], &msg.ResultInfo); err != nil {
		return nil, &ValidationError{Field: "resultInfo", Message: err.Error()}
	}
	if msg.ResultInfo.FilteringTime == nil {
		msg.ResultInfo.FilteringTime = make(FilteringTimes)
	}

	return &msg, nil
}

func (m *FilterMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func isObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
