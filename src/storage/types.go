package storage

import "time"

// SeenSession is one row of the recently-watched list.
type SeenSession struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	FirstSelectedAt time.Time `json:"first_selected_at" db:"first_selected_at"`
	LastSelectedAt  time.Time `json:"last_selected_at" db:"last_selected_at"`
	TimesSelected   int       `json:"times_selected" db:"times_selected"`
}

type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
