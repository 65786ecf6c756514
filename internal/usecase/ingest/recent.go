package ingest

// recentIDs — кольцевой буфер последних обработанных id фиксированной ёмкости.
type recentIDs struct {
	buf  []string
	next int
	size int
}

func newRecentIDs(capacity int) *recentIDs {
	if capacity <= 0 {
		capacity = 1
	}
	return &recentIDs{buf: make([]string, capacity)}
}

// Push добавляет id, вытесняя самый старый при переполнении.
func (r *recentIDs) Push(id string) {
	r.buf[r.next] = id
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// IDs возвращает содержимое от старого к новому.
func (r *recentIDs) IDs() []string {
	out := make([]string, 0, r.size)
	start := (r.next - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
