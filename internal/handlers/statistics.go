package handlers

import (
	"net/http"
	"sort"

	"microblog-client/internal/models"
)

// StatsAuthorItem represents an author with their share of the feed.
type StatsAuthorItem struct {
	Username   string
	Posts      int
	Likes      int
	Retweets   int
	Percentage float64
	IsSelf     bool
}

// StatsViewModel is the data passed to the statistics view template.
type StatsViewModel struct {
	Username      string
	TotalPosts    int
	TotalLikes    int
	TotalRetweets int
	Authors       []StatsAuthorItem
}

// Statistics renders per-author totals for the cached feed. It does not
// reload the feed.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	view := h.currentView()
	data := feedStats(view.Feed)
	data.Username = view.Username()
	h.render(w, r, "stats.html", data)
}

// feedStats aggregates posts by author, most active first.
func feedStats(posts []models.Post) StatsViewModel {
	var stats StatsViewModel
	byAuthor := make(map[string]*StatsAuthorItem)
	for _, p := range posts {
		item, ok := byAuthor[p.OwnerUsername]
		if !ok {
			item = &StatsAuthorItem{Username: p.OwnerUsername}
			byAuthor[p.OwnerUsername] = item
		}
		item.Posts++
		item.Likes += p.LikesCount
		item.Retweets += p.RetweetsCount
		item.IsSelf = item.IsSelf || p.IsOwner

		stats.TotalPosts++
		stats.TotalLikes += p.LikesCount
		stats.TotalRetweets += p.RetweetsCount
	}

	stats.Authors = make([]StatsAuthorItem, 0, len(byAuthor))
	for _, item := range byAuthor {
		if stats.TotalPosts > 0 {
			item.Percentage = float64(item.Posts) / float64(stats.TotalPosts) * 100
		}
		stats.Authors = append(stats.Authors, *item)
	}
	sort.Slice(stats.Authors, func(i, j int) bool {
		a, b := stats.Authors[i], stats.Authors[j]
		if a.Posts != b.Posts {
			return a.Posts > b.Posts
		}
		return a.Username < b.Username
	})
	return stats
}
