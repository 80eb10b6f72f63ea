package models

type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccountID   string `json:"account_id"`
	AccessToken string `json:"-"`
	ScheduleTab string `json:"schedule_tab"`
	LogTab      string `json:"log_tab"`
}

func (p *Profile) HasCredentials() bool {
	return p.AccountID != "" && p.AccessToken != ""
}
