package chat

// DayGroup is one calendar day's bucket of messages for display.
type DayGroup struct {
	Key      string
	Messages []Message
}

// dayKeyFormat renders the local calendar day as dd/mm/yyyy, zero-padded.
const dayKeyFormat = "02/01/2006"

// GroupByDate partitions a flat ordered message list into day buckets.
// Groups appear in first-seen order; within a bucket each message is
// prepended, so a bucket holds the reverse of fetch order. Pure and
// deterministic, safe to call repeatedly on any snapshot.
func GroupByDate(messages []Message) []DayGroup {
	var groups []DayGroup
	index := make(map[string]int, len(messages))

	for _, m := range messages {
		key := m.CreatedAt.Format(dayKeyFormat)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Key: key})
		}
		bucket := make([]Message, 0, len(groups[i].Messages)+1)
		bucket = append(bucket, m)
		bucket = append(bucket, groups[i].Messages...)
		groups[i].Messages = bucket
	}
	return groups
}
