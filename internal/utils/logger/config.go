// internal/utils/logger/config.go
package logger

type Config struct {
	LogFile     string
	MaxSize     int  // мегабайты
	MaxAge      int  // дни
	MaxBackups  int  // количество файлов
	Compress    bool // сжимать ротированные файлы
	Development bool
	FileOnly    bool // без вывода в stdout, для TUI
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "custody.log",
		MaxSize:     100,
		MaxAge:      30, // журнал кастодиальных операций храним дольше
		MaxBackups:  10,
		Compress:    true,
		Development: false,
	}
}
