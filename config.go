package bankgrow

type Config struct {
	Database struct {
		ConnectionString string `yaml:"conn_str"`
		// QueryTimeout bounds every store call, e.g. "5s".
		QueryTimeout string `yaml:"query_timeout"`
	} `yaml:"database"`
	AutoGrow struct {
		// Rate is a fractional multiplier, e.g. "0.10" for 10%.
		Rate string `yaml:"rate"`
		// Interval between sweeps, e.g. "30s".
		Interval string `yaml:"interval"`
		// Throttle is the pause between accounts within a sweep, e.g. "1s".
		Throttle string `yaml:"throttle"`
	} `yaml:"autogrow"`
}
