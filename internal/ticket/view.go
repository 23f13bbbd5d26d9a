package ticket

import "sort"

// MaxPool caps how many non-pinned tickets the admin view pages through.
const MaxPool = 500

// windowSize is how many page numbers PageWindow returns.
const windowSize = 5

var userStatusOrder = map[Status]int{
	StatusAwaiting:   1,
	StatusInProgress: 2,
	StatusOpen:       3,
	StatusClosed:     4,
}

func statusRank(s Status) int {
	if r, ok := userStatusOrder[s]; ok {
		return r
	}
	return 99
}

// UserView returns user's tickets: tickets awaiting the user first, then
// in progress, open, and closed; newest update first within a status.
func UserView(tickets []Ticket, user string) []Ticket {
	var out []Ticket
	for _, t := range tickets {
		if t.User == user {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := statusRank(out[i].Status), statusRank(out[j].Status)
		if ri != rj {
			return ri < rj
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// AdminPage is one page of the admin view.
type AdminPage struct {
	Pinned      []Ticket // Pinned open tickets, always shown.
	Active      []Ticket // Non-closed tickets on this page.
	Closed      []Ticket // Closed tickets on this page.
	Page        int
	PerPage     int
	TotalPages  int
	TotalItems  int // Size of the non-pinned pool.
	TotalActive int
	TotalClosed int
}

// AdminView pages through every ticket for staff. Pinned open tickets
// come first and are not paged. The remaining tickets are limited to the
// MaxPool most recently updated, ordered active before closed, active by
// priority (Urgent first), then newest update. page is clamped into
// range.
func AdminView(tickets []Ticket, perPage, page int) AdminPage {
	if perPage <= 0 {
		perPage = 25
	}

	var pinned, pool []Ticket
	for _, t := range tickets {
		switch {
		case t.Pinned && !t.Closed():
			pinned = append(pinned, t)
		case !t.Pinned:
			pool = append(pool, t)
		}
	}
	sort.SliceStable(pinned, func(i, j int) bool {
		return pinned[i].UpdatedAt.After(pinned[j].UpdatedAt)
	})

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].UpdatedAt.After(pool[j].UpdatedAt)
	})
	if len(pool) > MaxPool {
		pool = pool[:MaxPool]
	}
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Closed() != b.Closed() {
			return !a.Closed()
		}
		if !a.Closed() && a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() > b.Priority.rank()
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})

	total := len(pool)
	totalPages := (total + perPage - 1) / perPage
	switch {
	case totalPages == 0 || page < 1:
		page = 1
	case page > totalPages:
		page = totalPages
	}

	out := AdminPage{
		Pinned:     pinned,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		TotalItems: total,
	}
	for _, t := range pool {
		if t.Closed() {
			out.TotalClosed++
		} else {
			out.TotalActive++
		}
	}

	start := (page - 1) * perPage
	end := min(start+perPage, total)
	for _, t := range pool[min(start, total):end] {
		if t.Closed() {
			out.Closed = append(out.Closed, t)
		} else {
			out.Active = append(out.Active, t)
		}
	}
	return out
}

// PageWindow returns up to five page numbers around current, shifted to
// stay within [1, total]. It returns nil when there is a single page.
func PageWindow(current, total int) []int {
	if total <= 1 {
		return nil
	}
	start := max(1, current-windowSize/2)
	end := min(total, start+windowSize-1)
	if end-start+1 < windowSize {
		start = max(1, end-windowSize+1)
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}
