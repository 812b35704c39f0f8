package session

// DefaultName is the display name given to new sessions.
const DefaultName = "New Session"

func (s *Session) clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	return &out
}

func (m Message) clone() Message {
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}

// selectMessages applies q to msgs, which must be in chronological order.
func selectMessages(msgs []Message, q MessageQuery) []Message {
	end := len(msgs)
	if q.BeforeID != "" {
		end = -1
		for i, m := range msgs {
			if m.ID == q.BeforeID {
				end = i
				break
			}
		}
		if end < 0 {
			return []Message{}
		}
	}
	start := 0
	if q.Limit > 0 && end-q.Limit > 0 {
		start = end - q.Limit
	}
	out := make([]Message, 0, end-start)
	for _, m := range msgs[start:end] {
		out = append(out, m.clone())
	}
	return out
}
