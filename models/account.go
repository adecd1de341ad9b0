package models

// AccountEvents lists the events an address is involved in.
type AccountEvents struct {
	Address string      `json:"address"`
	Events  []EventView `json:"events"`
	Total   int         `json:"total"`
}

type AddTokenRequest struct {
	Address    string `json:"address" binding:"required"`
	Decimals   int32  `json:"decimals"`
	FeeBearing bool   `json:"fee_bearing"`
}
