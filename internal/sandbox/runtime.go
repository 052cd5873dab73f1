package sandbox

import (
	"github.com/dop251/goja"
)

// hardenScript runs once per runtime before user code is bound. It removes
// every path back to dynamic code generation and freezes the built-in
// prototypes so one row cannot change what the next row sees.
const hardenScript = `(function () {
	"use strict";
	var deny = function () {
		throw new EvalError("code generation from strings is not allowed");
	};
	var fnProtos = [
		Function.prototype,
		Object.getPrototypeOf(function* () {}),
		Object.getPrototypeOf(async function () {})
	];
	for (var i = 0; i < fnProtos.length; i++) {
		Object.defineProperty(fnProtos[i], "constructor", {
			value: deny, writable: false, enumerable: false, configurable: false
		});
	}
	var builtins = [
		Object, Array, String, Number, Boolean, Symbol, Date, RegExp, Map, Set,
		WeakMap, WeakSet, Promise, Error, TypeError, RangeError, SyntaxError,
		ReferenceError, EvalError, URIError
	];
	for (var j = 0; j < builtins.length; j++) {
		Object.freeze(builtins[j].prototype);
		Object.freeze(builtins[j]);
	}
	for (var k = 0; k < fnProtos.length; k++) {
		Object.freeze(fnProtos[k]);
	}
	Object.freeze(Math);
	Object.freeze(JSON);
})();`

// globalsRemoved are deleted from the global object after hardening.
var globalsRemoved = []string{"eval", "Function", "Reflect", "Proxy", "globalThis"}

func (c *Compiler) newRuntime() (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(c.opt.MaxCallStackSize)

	if _, err := vm.RunScript("<harden>", hardenScript); err != nil {
		return nil, err
	}
	global := vm.GlobalObject()
	for _, name := range globalsRemoved {
		if err := global.Delete(name); err != nil {
			return nil, err
		}
	}
	return vm, nil
}
