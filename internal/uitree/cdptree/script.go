package cdptree

// Names shared between the Go side and the page-context interceptor.
const (
	// completionBinding is the CDP binding the interceptor calls once the
	// upload request for a substituted asset succeeds.
	completionBinding = "__upliftComplete"
	// announceEvent is the custom event carrying a real asset URL the
	// interceptor should substitute for the next placeholder upload.
	announceEvent = "uplift:announce"
)

// interceptorScript runs in the page's own execution context. It is the
// other half of the completion bridge: it collects announced asset URLs,
// swaps the announced URL's bytes into the upload request that carries the
// placeholder, and reports success back through the completion binding with
// the original URL as correlation token.
//
// The script and the Go side share no memory and no ordering guarantee;
// everything is correlated by URL token.
const interceptorScript = `(() => {
	if (window.__upliftInterceptorInstalled) return;
	window.__upliftInterceptorInstalled = true;

	const pending = [];
	document.addEventListener("uplift:announce", (ev) => {
		if (ev.detail && ev.detail.url) pending.push(ev.detail.url);
	});

	const notify = (token) => {
		try {
			if (typeof window.__upliftComplete === "function") {
				window.__upliftComplete(JSON.stringify({token: token}));
			}
		} catch (e) { /* binding not installed */ }
	};

	const isPlaceholder = (file) =>
		file instanceof File && file.size < 1024 && file.type === "image/gif";

	const origFetch = window.fetch;
	window.fetch = async function(input, init) {
		let body = init && init.body;
		if (!(body instanceof FormData) || pending.length === 0) {
			return origFetch.apply(this, arguments);
		}
		let token = null;
		try {
			for (const [name, value] of body.entries()) {
				if (!isPlaceholder(value)) continue;
				token = pending.shift();
				if (!token) break;
				const assetResp = await origFetch(token);
				const blob = await assetResp.blob();
				const filename = token.split("/").pop().split("?")[0] || value.name;
				body.set(name, new File([blob], filename, {type: blob.type}));
				break;
			}
		} catch (e) {
			token = null;
		}
		const resp = await origFetch.apply(this, arguments);
		if (token && resp.ok) notify(token);
		return resp;
	};
})();`
