package kafka

import (
	"fmt"
	"sort"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// partitionEntry is one (topic, partition, offset) triple. A Partition of
// PartitionUnassigned stands for every partition of the topic and must be
// the topic's only entry.
type partitionEntry struct {
	Topic     string
	Partition int32
	Offset    int64
}

// PartitionList is an ordered collection of topic/partition/offset entries.
// It backs subscribe, commit, committed-offset and lag calls. A list is
// cheap to build and is never shared for mutation: every call path creates
// or receives its own.
type PartitionList struct {
	entries []partitionEntry
}

// NewPartitionList creates an empty partition list
func NewPartitionList() *PartitionList {
	return &PartitionList{}
}

// newPartitionListFromNative builds a list from a native assignment or
// committed-offset snapshot.
func newPartitionListFromNative(tps []kafka.TopicPartition) (*PartitionList, error) {
	if tps == nil {
		return nil, newError(KindInvalidArgument, kafka.ErrInvalidArg, "nil native partition snapshot")
	}
	list := &PartitionList{entries: make([]partitionEntry, 0, len(tps))}
	for _, tp := range tps {
		if tp.Topic == nil {
			return nil, newError(KindInvalidArgument, kafka.ErrInvalidArg, "native partition entry without topic")
		}
		list.entries = append(list.entries, partitionEntry{
			Topic:     *tp.Topic,
			Partition: tp.Partition,
			Offset:    int64(tp.Offset),
		})
	}
	return list, nil
}

// newPartitionListFromTopics builds a topic-only list (one unassigned entry
// per topic), the shape used for subscriptions.
func newPartitionListFromTopics(topics []string) *PartitionList {
	list := &PartitionList{entries: make([]partitionEntry, 0, len(topics))}
	for _, topic := range topics {
		list.Add(topic)
	}
	return list
}

// Add appends entries for topic. With no partitions given, a single
// unassigned-partition entry is appended, meaning "all partitions of this
// topic". Otherwise one entry per partition number is appended, in argument
// order. New entries carry the invalid-offset sentinel; no de-duplication is
// performed.
func (l *PartitionList) Add(topic string, partitions ...int32) *PartitionList {
	if len(partitions) == 0 {
		l.entries = append(l.entries, partitionEntry{
			Topic:     topic,
			Partition: PartitionUnassigned,
			Offset:    OffsetInvalid,
		})
		return l
	}
	for _, p := range partitions {
		l.entries = append(l.entries, partitionEntry{
			Topic:     topic,
			Partition: p,
			Offset:    OffsetInvalid,
		})
	}
	return l
}

// AddCount appends entries for partitions 0..count-1 of topic
func (l *PartitionList) AddCount(topic string, count int32) *PartitionList {
	for p := int32(0); p < count; p++ {
		l.Add(topic, p)
	}
	return l
}

// setOffset rewrites the offset of the matching entry, appending when absent.
func (l *PartitionList) setOffset(topic string, partition int32, offset int64) {
	for i := range l.entries {
		if l.entries[i].Topic == topic && l.entries[i].Partition == partition {
			l.entries[i].Offset = offset
			return
		}
	}
	l.entries = append(l.entries, partitionEntry{Topic: topic, Partition: partition, Offset: offset})
}

// Count returns the number of entries
func (l *PartitionList) Count() int {
	return len(l.entries)
}

// IsEmpty reports whether the list has no entries
func (l *PartitionList) IsEmpty() bool {
	return len(l.entries) == 0
}

// ToMap derives the topic view of the list: topic name to its partition
// details in entry order, or nil for a topic present as an unassigned entry.
func (l *PartitionList) ToMap() map[string][]PartitionOffset {
	out := make(map[string][]PartitionOffset, len(l.entries))
	for _, e := range l.entries {
		if e.Partition == PartitionUnassigned {
			out[e.Topic] = nil
			continue
		}
		out[e.Topic] = append(out[e.Topic], PartitionOffset{Partition: e.Partition, Offset: e.Offset})
	}
	return out
}

// Equal reports whether two lists carry the same topic/partition/offset
// content. Topic order and per-topic partition order are not significant;
// offsets per partition are.
func (l *PartitionList) Equal(other *PartitionList) bool {
	if other == nil {
		return false
	}
	a, b := l.ToMap(), other.ToMap()
	if len(a) != len(b) {
		return false
	}
	for topic, details := range a {
		otherDetails, ok := b[topic]
		if !ok {
			return false
		}
		if details == nil || otherDetails == nil {
			if len(details) != len(otherDetails) {
				return false
			}
			// both nil: unassigned entries match
			continue
		}
		if !samePartitionOffsets(details, otherDetails) {
			return false
		}
	}
	return true
}

func samePartitionOffsets(a, b []PartitionOffset) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]PartitionOffset(nil), a...)
	bs := append([]PartitionOffset(nil), b...)
	sort.Slice(as, func(i, j int) bool { return as[i].Partition < as[j].Partition })
	sort.Slice(bs, func(i, j int) bool { return bs[i].Partition < bs[j].Partition })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// String renders the list for logs
func (l *PartitionList) String() string {
	parts := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Partition == PartitionUnassigned {
			parts = append(parts, fmt.Sprintf("%s[*]", e.Topic))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s[%d]@%d", e.Topic, e.Partition, e.Offset))
	}
	return strings.Join(parts, " ")
}

// toNative converts the list to the runtime's partition slice
func (l *PartitionList) toNative() []kafka.TopicPartition {
	tps := make([]kafka.TopicPartition, 0, len(l.entries))
	for i := range l.entries {
		e := l.entries[i]
		topic := e.Topic
		tps = append(tps, kafka.TopicPartition{
			Topic:     &topic,
			Partition: e.Partition,
			Offset:    kafka.Offset(e.Offset),
		})
	}
	return tps
}

// eachEntry visits entries in list order
func (l *PartitionList) eachEntry(fn func(topic string, partition int32, offset int64)) {
	for _, e := range l.entries {
		fn(e.Topic, e.Partition, e.Offset)
	}
}

// hasUnassigned reports whether any entry carries the unassigned sentinel
func (l *PartitionList) hasUnassigned() bool {
	for _, e := range l.entries {
		if e.Partition == PartitionUnassigned {
			return true
		}
	}
	return false
}
