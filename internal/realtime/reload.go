package realtime

import "sort"

type pendingRow[T any] struct {
	row     T
	deleted bool
}

// reloadLog запоминает строки, пришедшие из ленты, пока идёт повторная
// выборка. Выборка могла прочитать данные до события, поэтому при слиянии
// событие важнее выбранной строки.
type reloadLog[T any] struct {
	depth int
	rows  map[string]pendingRow[T]
}

func (l *reloadLog[T]) begin() {
	if l.depth == 0 {
		l.rows = make(map[string]pendingRow[T])
	}
	l.depth++
}

func (l *reloadLog[T]) active() bool { return l.depth > 0 }

func (l *reloadLog[T]) record(id string, row T, deleted bool) {
	if !l.active() {
		return
	}
	l.rows[id] = pendingRow[T]{row: row, deleted: deleted}
}

func (l *reloadLog[T]) end() {
	if l.depth == 0 {
		return
	}
	l.depth--
	if l.depth == 0 {
		l.rows = nil
	}
}

func (l *reloadLog[T]) reset() {
	l.depth = 0
	l.rows = nil
}

// merge накладывает записанные события на выбранные строки: строка из события
// заменяет выбранную, удалённые выпадают, вставки, которых нет в выборке,
// дописываются в конец в порядке id.
func (l *reloadLog[T]) merge(fetched []T, id func(*T) string) []T {
	out := make([]T, 0, len(fetched)+len(l.rows))
	seen := make(map[string]struct{}, len(fetched))
	for i := range fetched {
		key := id(&fetched[i])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if p, ok := l.rows[key]; ok {
			if !p.deleted {
				out = append(out, p.row)
			}
			continue
		}
		out = append(out, fetched[i])
	}
	keys := make([]string, 0, len(l.rows))
	for key, p := range l.rows {
		if _, ok := seen[key]; !ok && !p.deleted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		out = append(out, l.rows[key].row)
	}
	return out
}
