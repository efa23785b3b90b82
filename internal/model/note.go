package model

import "time"

// Note はユーザーが所有するノートを表す。
// 所有者以外からは一切参照できない。
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
