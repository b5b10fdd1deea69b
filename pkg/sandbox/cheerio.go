package sandbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// selectionMarker tags wrapped goquery selections so $(wrapped) is a no-op,
// mirroring how plugins re-wrap elements inside each() callbacks.
const selectionMarker = "__cheerioSelection"

// cheerioModule exposes the HTML-query capability: a cheerio-compatible
// subset (load, find, each, text, attr, html, first, eq, parent, length)
// backed by goquery.
func cheerioModule() require.ModuleLoader {
	return func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		exports.Set("load", func(call goja.FunctionCall) goja.Value {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(call.Argument(0).String()))
			if err != nil {
				panic(vm.NewTypeError("cheerio: invalid document: %s", err.Error()))
			}
			return vm.ToValue(func(call goja.FunctionCall) goja.Value {
				arg := call.Argument(0)
				if obj, ok := arg.(*goja.Object); ok {
					if marker := obj.Get(selectionMarker); marker != nil && marker.ToBoolean() {
						return arg
					}
				}
				return wrapSelection(vm, doc.Find(arg.String()))
			})
		})
	}
}

func wrapSelection(vm *goja.Runtime, sel *goquery.Selection) goja.Value {
	obj := vm.NewObject()
	obj.Set(selectionMarker, true)
	obj.Set("length", sel.Length())

	obj.Set("find", func(call goja.FunctionCall) goja.Value {
		return wrapSelection(vm, sel.Find(call.Argument(0).String()))
	})
	obj.Set("first", func(goja.FunctionCall) goja.Value {
		return wrapSelection(vm, sel.First())
	})
	obj.Set("eq", func(call goja.FunctionCall) goja.Value {
		return wrapSelection(vm, sel.Eq(int(call.Argument(0).ToInteger())))
	})
	obj.Set("parent", func(goja.FunctionCall) goja.Value {
		return wrapSelection(vm, sel.Parent())
	})
	obj.Set("filter", func(call goja.FunctionCall) goja.Value {
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			return wrapSelection(vm, sel.FilterFunction(func(i int, s *goquery.Selection) bool {
				keep, err := fn(goja.Undefined(), vm.ToValue(i), wrapSelection(vm, s))
				if err != nil {
					panic(vm.NewGoError(err))
				}
				return keep.ToBoolean()
			}))
		}
		return wrapSelection(vm, sel.Filter(call.Argument(0).String()))
	})
	obj.Set("each", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("cheerio: each expects a function"))
		}
		sel.Each(func(i int, s *goquery.Selection) {
			if _, err := fn(goja.Undefined(), vm.ToValue(i), wrapSelection(vm, s)); err != nil {
				panic(vm.NewGoError(err))
			}
		})
		return obj
	})
	obj.Set("text", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(sel.Text())
	})
	obj.Set("html", func(goja.FunctionCall) goja.Value {
		html, err := sel.Html()
		if err != nil {
			return goja.Undefined()
		}
		return vm.ToValue(html)
	})
	obj.Set("attr", func(call goja.FunctionCall) goja.Value {
		val, ok := sel.Attr(call.Argument(0).String())
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(val)
	})

	return obj
}
