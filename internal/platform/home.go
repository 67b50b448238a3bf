package platform

import "os"

// userHome is replaced in tests
var userHome = os.UserHomeDir
