package models

// RoomDetail is the metadata shown in a room header.
type RoomDetail struct {
	RoomID     int    `json:"chatRoomId"`
	Title      string `json:"title"`
	Tag        string `json:"tag"`
	Author     string `json:"author"`
	StudentNum int    `json:"studentNum"`
	CreatedAt  Time   `json:"createdAt"`
}

// RoomSummary is one entry of the caller's room list.
type RoomSummary struct {
	RoomID     int    `json:"chatRoomId"`
	Best       bool   `json:"best"`
	LikeCnt    int    `json:"likeCnt"`
	DislikeCnt int    `json:"dislikeCnt"`
	Title      string `json:"title"`
	Tag        string `json:"tag"`
	Author     string `json:"author"`
	CreatedAt  Time   `json:"createdAt"`
}
