package models

// Examples are the sample request payloads served at /docs/examples.
var Examples = map[string]any{
	"host_signup": map[string]any{
		"email":     "host@gmail.com",
		"password":  "1234",
		"host_name": "host",
	},
	"client_signup": map[string]any{
		"email":       "client@gmail.com",
		"password":    "1234",
		"client_name": "client",
	},
	"host_update": map[string]any{
		"password":  "12345",
		"host_name": "host1",
	},
	"client_update": map[string]any{
		"password":    "12345",
		"client_name": "client1",
	},
	"service": map[string]any{
		"service_name":        "카페 짐가방",
		"category":            "카페",
		"address":             "서울특별시 강남구 역삼동 123-45",
		"latitude":            37.123456,
		"longitude":           127.123456,
		"service_time":        "09:00 ~ 18:00",
		"service_date":        []string{"2021-09-01", "2021-09-02", "2021-09-03"},
		"total_available_bag": 5,
	},
	"service_update": map[string]any{
		"service_time":        "10:00 ~ 20:00",
		"total_available_bag": 8,
	},
	"booking": map[string]any{
		"service_id":   "650c1f1e8f1b2c3d4e5f6a7b",
		"booking_date": []string{"2021-09-01", "2021-09-02"},
		"booking_bag":  2,
	},
	"booking_update": map[string]any{
		"booking_date": []string{"2021-09-03"},
		"booking_bag":  3,
	},
	"booking_status": map[string]any{
		"confirm": StatusConfirmed,
	},
	"token_response": TokenResponse{
		AccessToken:  "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJlbWFpbCI6ImZh",
		RefreshToken: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJlbWFpbCI6ImZh",
		TokenType:    "Bearer ",
	},
}
