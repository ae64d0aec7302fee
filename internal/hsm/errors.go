package hsm

import "github.com/themis-db/shardcore/internal/shardcoreerr"

var errLibraryLoad = shardcoreerr.New(shardcoreerr.KindCrypto, shardcoreerr.ReasonDeviceError, "pkcs11 library load")
