package sandbox

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// cryptoModule exposes the hashing/HMAC capability. Digests return lowercase
// hex strings. Registered under both "crypto" and "crypto-js" since remote
// plugins were written against the latter's call names.
func cryptoModule() require.ModuleLoader {
	return func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)

		digest := func(newHash func() hash.Hash) func(goja.FunctionCall) goja.Value {
			return func(call goja.FunctionCall) goja.Value {
				h := newHash()
				h.Write([]byte(call.Argument(0).String()))
				return vm.ToValue(hex.EncodeToString(h.Sum(nil)))
			}
		}
		hmacDigest := func(newHash func() hash.Hash) func(goja.FunctionCall) goja.Value {
			return func(call goja.FunctionCall) goja.Value {
				mac := hmac.New(newHash, []byte(call.Argument(1).String()))
				mac.Write([]byte(call.Argument(0).String()))
				return vm.ToValue(hex.EncodeToString(mac.Sum(nil)))
			}
		}

		exports.Set("MD5", digest(func() hash.Hash { return md5.New() }))
		exports.Set("SHA1", digest(func() hash.Hash { return sha1.New() }))
		exports.Set("SHA256", digest(func() hash.Hash { return sha256.New() }))
		exports.Set("HmacSHA1", hmacDigest(func() hash.Hash { return sha1.New() }))
		exports.Set("HmacSHA256", hmacDigest(func() hash.Hash { return sha256.New() }))

		exports.Set("base64Encode", func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(base64.StdEncoding.EncodeToString([]byte(call.Argument(0).String())))
		})
		exports.Set("base64Decode", func(call goja.FunctionCall) goja.Value {
			data, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
			if err != nil {
				panic(vm.NewTypeError("crypto: invalid base64 input"))
			}
			return vm.ToValue(string(data))
		})
	}
}
