package model

// Product is the slice of the catalog this subsystem reads: the listing a
// chat negotiates over and its owner. Catalog CRUD is owned elsewhere.
type Product struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`
	Title    string `json:"title"`
}
