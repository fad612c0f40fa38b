package ds3231

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Ошибки драйвера; errors.Is работает и с самим значением, и с errno ядра.
var (
	// ErrNoDevice — не удалось привязать карту регистров или нет данных device tree.
	ErrNoDevice = fmt.Errorf("ds3231: no such device: %w", unix.ENODEV)
	// ErrIO — ошибка одиночной транзакции на шине. Повторов нет.
	ErrIO = fmt.Errorf("ds3231: i2c transfer failed: %w", unix.EIO)
	// ErrInvalidTime — регистры времени содержат недопустимые значения или
	// генератор останавливался (OSF).
	ErrInvalidTime = fmt.Errorf("ds3231: invalid time: %w", unix.EINVAL)
	// ErrYearOutOfRange — год вне 2000–2099.
	ErrYearOutOfRange = fmt.Errorf("ds3231: year out of range: %w", unix.EINVAL)
	// ErrInvalidAlarm — недопустимые поля или маски будильника.
	ErrInvalidAlarm = fmt.Errorf("ds3231: invalid alarm: %w", unix.EINVAL)
	// ErrBusy — преобразование температуры уже идёт.
	ErrBusy = fmt.Errorf("ds3231: temperature conversion in progress: %w", unix.EBUSY)
)
