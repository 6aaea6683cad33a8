package dto

// HolidayRequest creates or replaces a holiday. EndDate defaults to StartDate.
type HolidayRequest struct {
	Name      string `json:"name" validate:"required,max=120"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate"`
}

// HolidayQuery limits listed holidays to those overlapping [From, To].
type HolidayQuery struct {
	From string `form:"from" json:"from"`
	To   string `form:"to" json:"to"`
}
