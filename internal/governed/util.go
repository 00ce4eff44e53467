// Copyright 2025 James Ross
package governed

import "time"

func nowUTC() time.Time { return time.Now().UTC() }
